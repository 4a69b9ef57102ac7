package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations はPBKDF2-SHA256の反復回数。
	pbkdf2Iterations = 100000
	// pbkdf2KeyLength は導出鍵長（バイト）。
	pbkdf2KeyLength = 32
	// saltBytes はソルトの長さ（バイト）。hex表現で32文字になる。
	saltBytes = 16
)

// HashPassword はパスワードをソルト付きでハッシュ化し、
// 「ハッシュ(hex):ソルト(hex)」形式の文字列を返す。
func HashPassword(password string) (string, error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)

	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return hex.EncodeToString(key) + ":" + salt, nil
}

// VerifyPassword は平文パスワードを保存済みハッシュと定数時間で照合する。
// ハッシュ形式が不正な場合はfalseを返す。
func VerifyPassword(password, stored string) bool {
	hashPart, salt, ok := strings.Cut(stored, ":")
	if !ok || hashPart == "" || salt == "" {
		return false
	}

	expected, err := hex.DecodeString(hashPart)
	if err != nil {
		return false
	}

	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return subtle.ConstantTimeCompare(key, expected) == 1
}
