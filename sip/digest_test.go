package sip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChallengeRejectsNonDigestScheme(t *testing.T) {
	_, err := ParseChallenge(`Basic realm="example.org"`)
	require.ErrorIs(t, err, ErrDigestSchemeNotSupported)
}

func TestParseChallengeExtractsParams(t *testing.T) {
	c, err := ParseChallenge(`Digest realm="example.org", nonce="abc", qop="auth", algorithm=MD5`)
	require.NoError(t, err)
	assert.Equal(t, "example.org", c.Realm)
	assert.Equal(t, "abc", c.Nonce)
	assert.Equal(t, "MD5", c.Algorithm)
	assert.Equal(t, "auth", c.SelectQop())
}

func TestChallengeSelectQopPrefersAuthInt(t *testing.T) {
	c := &Challenge{QopOptions: []string{"auth", "auth-int"}}
	assert.Equal(t, "auth-int", c.SelectQop())
}

func TestChallengeSelectQopNoneOffered(t *testing.T) {
	c := &Challenge{}
	assert.Equal(t, "", c.SelectQop())
}

// S1 — successful registration with Digest (base spec §8).
func TestComputeCredentialsMatchesS1(t *testing.T) {
	chal, err := ParseChallenge(`Digest realm="example.org", nonce="abc", qop="auth", algorithm=MD5`)
	require.NoError(t, err)

	cred := ComputeCredentials(DigestParams{
		Method:    "REGISTER",
		URI:       "sip:example.org",
		Username:  "alice",
		Password:  "s3cret",
		Challenge: chal,
		Qop:       "auth",
		NC:        1,
		Cnonce:    "abcdef",
	})

	ha1 := md5hex("alice:example.org:s3cret")
	ha2 := md5hex("REGISTER:sip:example.org")
	expected := md5hex(ha1 + ":abc:00000001:abcdef:auth:" + ha2)

	assert.Equal(t, expected, cred.Response)
	assert.Equal(t, "00000001", cred.NC)
}

func TestComputeCredentialsMD5Sess(t *testing.T) {
	chal, err := ParseChallenge(`Digest realm="example.org", nonce="abc", algorithm=MD5-sess`)
	require.NoError(t, err)

	cred := ComputeCredentials(DigestParams{
		Method:    "INVITE",
		URI:       "sip:bob@example.org",
		Username:  "alice",
		Password:  "s3cret",
		Challenge: chal,
		Cnonce:    "xyz123",
	})

	base := md5hex("alice:example.org:s3cret")
	ha1 := md5hex(base + ":abc:xyz123")
	ha2 := md5hex("INVITE:sip:bob@example.org")
	expected := md5hex(ha1 + ":abc:" + ha2)

	assert.Equal(t, expected, cred.Response)
}

func TestComputeCredentialsAuthInt(t *testing.T) {
	chal, err := ParseChallenge(`Digest realm="example.org", nonce="abc", qop="auth-int"`)
	require.NoError(t, err)

	body := []byte("v=0\r\n")
	cred := ComputeCredentials(DigestParams{
		Method:    "INVITE",
		URI:       "sip:bob@example.org",
		Username:  "alice",
		Password:  "s3cret",
		Challenge: chal,
		Qop:       "auth-int",
		NC:        1,
		Cnonce:    "cn1",
		Body:      body,
	})

	ha1 := md5hex("alice:example.org:s3cret")
	ha2 := md5hex("INVITE:sip:bob@example.org:" + md5hex(string(body)))
	expected := md5hex(ha1 + ":abc:00000001:cn1:auth-int:" + ha2)
	assert.Equal(t, expected, cred.Response)
}

func TestCredentialsStringIncludesQopFields(t *testing.T) {
	c := Credentials{
		Username: "alice", Realm: "example.org", Nonce: "abc", URI: "sip:example.org",
		Response: "deadbeef", Qop: "auth", NC: "00000001", Cnonce: "abcdef",
	}
	s := c.String()
	assert.Contains(t, s, `username="alice"`)
	assert.Contains(t, s, "qop=auth")
	assert.Contains(t, s, "nc=00000001")
	assert.Contains(t, s, `cnonce="abcdef"`)
}
