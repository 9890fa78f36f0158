package assets

import (
	"path"
	"strconv"
	"strings"
)

// SanitizeFileName keeps only the last path element of name and replaces
// characters that would change how the resulting key normalizes.
func SanitizeFileName(name string) string {
	v := strings.TrimSpace(name)
	v = strings.ReplaceAll(v, "\\", "/")
	if i := strings.LastIndex(v, "/"); i >= 0 {
		v = v[i+1:]
	}
	v = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20 || r == 0x7f:
			return -1
		case r == '?' || r == '#' || r == '%' || r == ':' || r == ' ':
			return '_'
		}
		return r
	}, v)
	v = strings.Trim(v, ". ")
	if v == "" {
		return "file"
	}
	return v
}

// TempPrefix is the staging directory owned by ownerID, with a trailing slash.
func TempPrefix(tempRoot string, ownerID int) string {
	return path.Join(strings.Trim(tempRoot, "/"), strconv.Itoa(ownerID)) + "/"
}

// TempKey is where a client uploads a file before it is attached to a post.
func TempKey(tempRoot string, ownerID int, uploadID, fileName string) string {
	return TempPrefix(tempRoot, ownerID) + uploadID + "-" + SanitizeFileName(fileName)
}

// IsOwnedTempKey reports whether key sits in ownerID's staging directory.
func IsOwnedTempKey(key, tempRoot string, ownerID int) bool {
	prefix := TempPrefix(tempRoot, ownerID)
	return strings.HasPrefix(key, prefix) && len(key) > len(prefix)
}

// PermanentKey returns
// {permanentRoot}/{scope}/{ownerID}/{postID}/{base name of tempKey}.
// The result depends only on its inputs, so promoting the same temp key for
// the same post always targets the same object.
func PermanentKey(permanentRoot, scope string, ownerID, postID int, tempKey string) string {
	return path.Join(
		strings.Trim(permanentRoot, "/"),
		scope,
		strconv.Itoa(ownerID),
		strconv.Itoa(postID),
		SanitizeFileName(path.Base(tempKey)),
	)
}

// PermanentScope returns the scope segment of key when key is a permanent
// object of postID owned by ownerID, laid out as PermanentKey builds it.
func PermanentScope(permanentRoot, key string, ownerID, postID int) (string, bool) {
	root := strings.Trim(permanentRoot, "/")
	rest, ok := strings.CutPrefix(key, root+"/")
	if !ok {
		return "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[0] == "" || parts[3] == "" {
		return "", false
	}
	if parts[1] != strconv.Itoa(ownerID) || parts[2] != strconv.Itoa(postID) {
		return "", false
	}
	return parts[0], true
}
