package config

import "os"

func IsDebug() bool {
	return os.Getenv("LOKALITY_DEBUG") == "1"
}
