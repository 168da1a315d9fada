package models

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// RoomCodeCharset leaves out 0, O, 1 and I so codes can be read aloud.
const RoomCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RoomCodeLength is the length of generated codes.
const RoomCodeLength = 6

// GenerateRoomCode returns a random room code.
func GenerateRoomCode() (string, error) {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(RoomCodeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = RoomCodeCharset[num.Int64()]
	}
	return string(code), nil
}

// NormalizeRoomCode trims and upper-cases a user-typed code.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoomCode reports whether code looks like one GenerateRoomCode would produce.
// Room codes are opaque to the authority, so this is only a hint for user input.
func ValidRoomCode(code string) bool {
	code = NormalizeRoomCode(code)
	if len(code) < RoomCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(RoomCodeCharset, c) {
			return false
		}
	}
	return true
}
