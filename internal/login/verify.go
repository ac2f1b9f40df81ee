// Package login verifies the signed identity assertion produced by the
// chat login widget. The check is stateless: callers exchange a verified
// assertion for a session token and discard it.
package login

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxAssertionAge bounds replay of a captured assertion.
const MaxAssertionAge = 86400 * time.Second

// Assertion carries the raw fields asserted by the login widget.
type Assertion struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// Verifier checks assertions against the bot token shared with the widget.
type Verifier struct {
	BotToken string
	Now      func() time.Time
}

func (v Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Verify reports whether the assertion is authentic and fresh. All
// rejection reasons collapse into false; callers must not distinguish a
// bad signature from a stale assertion.
func (v Verifier) Verify(a Assertion) bool {
	if a.Hash == "" || v.BotToken == "" {
		return false
	}
	expected := computeHash(a, v.BotToken)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(a.Hash))) {
		return false
	}
	age := v.now().Unix() - a.AuthDate
	return age <= int64(MaxAssertionAge/time.Second)
}

// computeHash builds the canonical sorted key=value representation of the
// assertion (hash excluded, empty optionals omitted) and signs it with
// HMAC-SHA256 under SHA-256 of the bot token.
func computeHash(a Assertion, botToken string) string {
	fields := map[string]string{
		"id":         strconv.FormatInt(a.ID, 10),
		"first_name": a.FirstName,
		"auth_date":  strconv.FormatInt(a.AuthDate, 10),
	}
	if a.LastName != "" {
		fields["last_name"] = a.LastName
	}
	if a.Username != "" {
		fields["username"] = a.Username
	}
	if a.PhotoURL != "" {
		fields["photo_url"] = a.PhotoURL
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%s", k, fields[k]))
	}
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
