package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host string `env:"HOST,required=true"`
	Port int    `env:"PORT,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	JWTSecret         string        `env:"JWT_SECRET"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	HistoryLimit  int           `env:"HISTORY_LIMIT,required=true"`
	TypingTTL     time.Duration `env:"TYPING_TTL,required=true"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,required=true"`

	RoomBufferSize       int `env:"ROOM_BUFFER_SIZE,required=true"`
	ConnectionBufferSize int `env:"CONNECTION_BUFFER_SIZE,required=true"`

	RestartInterval time.Duration `env:"RESTART_INTERVAL,required=true"`

	EnableModeration bool   `env:"ENABLE_MODERATION,required=true"`
	CharReplacement  string `env:"CHARACTER_REPLACEMENT"`

	DebugPort int `env:"DEBUG_PORT"`
}

// CharacterRune parses the censor replacement character, defaulting to '*'
// when unset.
func CharacterRune(str string) (rune, error) {
	if str == "" {
		return '*', nil
	}
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
