package cache

// GenerateKey joins a namespace and an id.
func GenerateKey(prefix string, id string) string {
	return prefix + ":" + id
}
