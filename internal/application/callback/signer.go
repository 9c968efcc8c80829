// Package callback 对回调载荷做 HMAC 签名并投递
package callback

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

const (
	// HeaderSignature 签名头，值为 sha256=<hex>
	HeaderSignature = "X-Signature"
	// HeaderTimestamp 时间戳头，载荷 timestamp 的毫秒值
	HeaderTimestamp = "X-Timestamp"

	signaturePrefix = "sha256="
	defaultMaxSkew  = 5 * time.Minute
)

var (
	// ErrSignatureMismatch 签名不匹配
	ErrSignatureMismatch = errors.New("callback signature mismatch")
	// ErrStaleTimestamp 时间戳超出允许偏差
	ErrStaleTimestamp = errors.New("callback timestamp outside allowed skew")
	// ErrMalformedTimestamp 时间戳无法解析
	ErrMalformedTimestamp = errors.New("callback timestamp is malformed")
	// ErrTimestampMismatch 时间戳头与载荷中的 timestamp 不一致
	ErrTimestampMismatch = errors.New("callback timestamp header does not match payload")
)

// Signer HMAC-SHA256 签名器，签名覆盖序列化后的载荷字节
type Signer struct {
	secret  []byte
	maxSkew time.Duration
	now     func() time.Time
}

// NewSigner 创建签名器
func NewSigner(secret string, maxSkew time.Duration) *Signer {
	if maxSkew <= 0 {
		maxSkew = defaultMaxSkew
	}
	return &Signer{secret: []byte(secret), maxSkew: maxSkew, now: time.Now}
}

// Sign 对载荷签名，时间戳头取自载荷的 timestamp 字段
func (s *Signer) Sign(payload []byte) (signature, timestamp string, err error) {
	ms, err := payloadMillis(payload)
	if err != nil {
		return "", "", err
	}
	return s.sign(payload), strconv.FormatInt(ms, 10), nil
}

func (s *Signer) sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify 校验签名、时间戳偏差以及时间戳头与载荷是否一致
func (s *Signer) Verify(payload []byte, signature, timestamp string) error {
	ms, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return ErrMalformedTimestamp
	}
	if !hmac.Equal([]byte(s.sign(payload)), []byte(strings.TrimSpace(signature))) {
		return ErrSignatureMismatch
	}
	signed, err := payloadMillis(payload)
	if err != nil {
		return err
	}
	if signed != ms {
		return ErrTimestampMismatch
	}
	skew := s.now().Sub(time.UnixMilli(ms))
	if skew < 0 {
		skew = -skew
	}
	if skew > s.maxSkew {
		return ErrStaleTimestamp
	}
	return nil
}

// payloadMillis 读取载荷 timestamp（ISO8601）的毫秒值
func payloadMillis(payload []byte) (int64, error) {
	var body struct {
		Timestamp *time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Timestamp == nil {
		return 0, ErrMalformedTimestamp
	}
	return body.Timestamp.UnixMilli(), nil
}
