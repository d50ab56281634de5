package chat

import (
	"math/rand/v2"
)

var (
	nicknameAdjectives = []string{
		"bubbly", "fizzy", "sparkling", "chilled", "sweet", "frosty", "zesty", "mellow",
		"brave", "sleepy", "curious", "gentle", "lucky", "quiet", "sunny", "witty",
		"clever", "cosmic", "dizzy", "fuzzy", "jolly", "nimble", "swift", "tiny",
	}
	nicknameNouns = []string{
		"otter", "heron", "panda", "fox", "koala", "penguin", "walrus", "badger",
		"lemon", "lime", "cherry", "peach", "mango", "melon", "plum", "kiwi",
		"comet", "cloud", "pebble", "maple", "acorn", "ripple", "spark", "breeze",
	}
)

// GenerateNickname returns a random "adjective noun" nickname.
func GenerateNickname() string {
	adj := nicknameAdjectives[rand.IntN(len(nicknameAdjectives))]
	noun := nicknameNouns[rand.IntN(len(nicknameNouns))]
	return adj + " " + noun
}
