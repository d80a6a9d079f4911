package core

import "fmt"

// Level is the severity of a Notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is transient user-facing feedback produced at an external-call site.
type Notice struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

func Info(format string, args ...any) Notice {
	return Notice{Level: LevelInfo, Message: fmt.Sprintf(format, args...)}
}

func Warning(format string, args ...any) Notice {
	return Notice{Level: LevelWarning, Message: fmt.Sprintf(format, args...)}
}

func Errorf(format string, args ...any) Notice {
	return Notice{Level: LevelError, Message: fmt.Sprintf(format, args...)}
}

// CountLevel returns how many notices have the given level.
func CountLevel(notices []Notice, level Level) int {
	n := 0
	for _, nt := range notices {
		if nt.Level == level {
			n++
		}
	}
	return n
}
