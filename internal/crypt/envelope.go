package crypt

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Request is the body sent to every API host.
type Request struct {
	Client    string `json:"client"`
	Timestamp int64  `json:"timestamp"`
	Data      string `json:"data"`
	Sign      string `json:"sign"`
}

// Envelope encrypts and signs API payloads under a fixed pre-shared key.
type Envelope struct {
	block   cipher.Block
	iv      []byte
	signKey []byte
	client  string
	now     func() time.Time
}

// NewEnvelope builds the request/response cipher. key must be 16, 24 or 32
// bytes and iv exactly 16.
func NewEnvelope(key, iv, signKey, client string) (*Envelope, error) {
	block, err := newBlock([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	if err := checkIV([]byte(iv)); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	if signKey == "" {
		return nil, fmt.Errorf("envelope: sign key is empty")
	}
	return &Envelope{
		block:   block,
		iv:      []byte(iv),
		signKey: []byte(signKey),
		client:  client,
		now:     time.Now,
	}, nil
}

// Encrypt marshals v to JSON and returns it encrypted, base64 encoded.
func (e *Envelope) Encrypt(v any) (string, error) {
	plain, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(cbcEncrypt(e.block, e.iv, plain)), nil
}

// Decrypt reverses Encrypt and returns the JSON bytes, or nil.
func (e *Envelope) Decrypt(data string) []byte {
	ct, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil
	}
	plain, err := cbcDecrypt(e.block, e.iv, ct)
	if err != nil {
		return nil
	}
	return plain
}

// Sign is hex(HMAC-SHA256(signKey, timestamp || data)).
func (e *Envelope) Sign(ts int64, data string) string {
	mac := hmac.New(sha256.New, e.signKey)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// Wrap encrypts payload and signs it with the current unix time.
func (e *Envelope) Wrap(payload any) (Request, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := e.Encrypt(payload)
	if err != nil {
		return Request{}, err
	}
	ts := e.now().Unix()
	return Request{
		Client:    e.client,
		Timestamp: ts,
		Data:      data,
		Sign:      e.Sign(ts, data),
	}, nil
}

// Open returns the usable JSON of a response body. When the body carries a
// string "data" field, that field is decrypted and returned instead of the
// body. It returns nil when the body is not a JSON object or the field does
// not decrypt.
func (e *Envelope) Open(body []byte) []byte {
	var outer map[string]json.RawMessage
	if err := json.Unmarshal(body, &outer); err != nil || outer == nil {
		return nil
	}
	raw, ok := outer["data"]
	if !ok {
		return body
	}
	var enc string
	if err := json.Unmarshal(raw, &enc); err != nil {
		// data is not a string: the body is already plain.
		return body
	}
	if enc == "" {
		return nil
	}
	return e.Decrypt(enc)
}
