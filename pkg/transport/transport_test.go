// Copyright ©️ Liri. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The digest rendering drops leading zeros per byte, so 0x0a is "a".
// sha256("hello world") starts b9 4d 27 b9 93 4d 3e 08 a5 …; standard
// hex would spell the eighth byte "08".
func TestFingerprint(t *testing.T) {
	fp, err := Fingerprint(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e"+"8"+"a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", fp)
}

func TestFingerprintFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	fp, err := FingerprintFile(path)
	require.NoError(t, err)

	want, err := Fingerprint(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, want, fp)

	_, err = FingerprintFile(filepath.Join(t.TempDir(), "absent"))
	assert.True(t, os.IsNotExist(err))
}

func TestRevisionPairJSON(t *testing.T) {
	pair := RevisionPair{From: RevNull, To: "b94d27b9"}
	b, err := json.Marshal(pair)
	require.NoError(t, err)
	assert.Equal(t, `["`+RevNull+`","b94d27b9"]`, string(b))

	var out RevisionPair
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, pair, out)

	assert.Error(t, json.Unmarshal([]byte(`{"from":"a"}`), &out))
}

func TestUpdateSetJSON(t *testing.T) {
	set := UpdateSet{"stable": {From: "aa", To: "bb"}}
	b, err := json.Marshal(&UpdateRequest{Refs: set})
	require.NoError(t, err)
	assert.JSONEq(t, `{"refs":{"stable":["aa","bb"]}}`, string(b))

	var req UpdateRequest
	require.NoError(t, json.Unmarshal(b, &req))
	assert.Equal(t, set, req.Refs)
}

func TestErrorResponse(t *testing.T) {
	e := &ErrorResponse{Status: 400, Type: ErrorTypeWrongRepoState, Message: "nope", CurrentState: "idle", ExpectedState: "receiving"}
	b, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":400,"error-type":"wrong-repo-state","message":"nope","current-state":"idle","expected-state":"receiving"}`, string(b))
	assert.Contains(t, e.Error(), "wrong-repo-state")
}
