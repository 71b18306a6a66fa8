package live

import "strings"

// eventName maps a handler prop key to its event name: "onClick" -> "click".
func eventName(key string) string {
	if len(key) > 2 && strings.EqualFold(key[:2], "on") {
		return strings.ToLower(key[2:])
	}
	return strings.ToLower(key)
}
