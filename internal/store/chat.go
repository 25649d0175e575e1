package store

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

var privateChatNamespace = uuid.MustParse("6f1b7c1e-3d2a-4c59-9a4f-5c1d2e7b8a90")

// ValidID reports whether id can name a record. Ids arrive from other
// devices and end up in file names, so they must be a single path element.
func ValidID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > 128 {
		return false
	}
	return !strings.ContainsAny(id, "/\\\x00")
}

// PrivateChatID returns the stable chat id shared by two users, independent of
// argument order.
func PrivateChatID(userA, userB string) string {
	members := []string{userA, userB}
	sort.Strings(members)
	return uuid.NewSHA1(privateChatNamespace, []byte(strings.Join(members, ":"))).String()
}
