package cache

import "fmt"

// GenerateKey joins a namespace and an id as "namespace:id".
func GenerateKey(namespace, id string) string {
	return fmt.Sprintf("%s:%s", namespace, id)
}
