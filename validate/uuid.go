package validate

import "github.com/google/uuid"

func isUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func isUUIDSlice(ss []string) bool {
	for _, s := range ss {
		if !isUUID(s) {
			return false
		}
	}
	return true
}
