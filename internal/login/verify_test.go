package login

import (
	"strings"
	"testing"
	"time"
)

const testToken = "12345:test-bot-token"

func signedAssertion(authDate int64) Assertion {
	a := Assertion{
		ID:        777000,
		FirstName: "Anna",
		Username:  "anna_pm",
		AuthDate:  authDate,
	}
	a.Hash = computeHash(a, testToken)
	return a
}

func testVerifier(now time.Time) Verifier {
	return Verifier{BotToken: testToken, Now: func() time.Time { return now }}
}

func TestVerifyAccepts(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v := testVerifier(now)
	if !v.Verify(signedAssertion(now.Unix() - 60)) {
		t.Fatal("fresh signed assertion rejected")
	}
}

func TestVerifyUppercaseHash(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v := testVerifier(now)
	a := signedAssertion(now.Unix() - 60)
	a.Hash = strings.ToUpper(a.Hash)
	if !v.Verify(a) {
		t.Fatal("hex case must not matter")
	}
}

func TestVerifyRejectsTamperedField(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v := testVerifier(now)
	a := signedAssertion(now.Unix() - 60)
	a.ID = 111222
	if v.Verify(a) {
		t.Fatal("tampered id accepted")
	}
}

func TestVerifyRejectsTamperedHash(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v := testVerifier(now)
	a := signedAssertion(now.Unix() - 60)
	if a.Hash[0] == '0' {
		a.Hash = "1" + a.Hash[1:]
	} else {
		a.Hash = "0" + a.Hash[1:]
	}
	if v.Verify(a) {
		t.Fatal("altered hash accepted")
	}
}

func TestVerifyRejectsStale(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v := testVerifier(now)
	stale := signedAssertion(now.Add(-MaxAssertionAge - time.Minute).Unix())
	if v.Verify(stale) {
		t.Fatal("stale assertion accepted")
	}
	edge := signedAssertion(now.Add(-MaxAssertionAge).Unix())
	if !v.Verify(edge) {
		t.Fatal("assertion exactly at max age rejected")
	}
}

func TestVerifyRejectsWrongToken(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	a := signedAssertion(now.Unix() - 60)
	other := Verifier{BotToken: "999:another-token", Now: func() time.Time { return now }}
	if other.Verify(a) {
		t.Fatal("assertion verified under a different token")
	}
	empty := Verifier{BotToken: "", Now: func() time.Time { return now }}
	if empty.Verify(a) {
		t.Fatal("empty token must fail closed")
	}
}

func TestComputeHashOmitsEmptyOptionals(t *testing.T) {
	base := Assertion{ID: 1, FirstName: "A", AuthDate: 100}
	withEmpty := base
	withEmpty.LastName = ""
	if computeHash(base, testToken) != computeHash(withEmpty, testToken) {
		t.Fatal("empty optional changed the hash")
	}
	withValue := base
	withValue.LastName = "B"
	if computeHash(base, testToken) == computeHash(withValue, testToken) {
		t.Fatal("optional field not covered by the hash")
	}
}
