package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecryptFailed 认证标签校验失败（密文被篡改或密钥不符）
var ErrDecryptFailed = errors.New("privacy: decrypt failed")

// keyIterations / keySalt PBKDF2 参数。keySalt 固定，保证同一 master secret
// 在 agent 与 server 两侧派生出同一把密钥。
const keyIterations = 4096

var keySalt = []byte("callguard-field-key-v1")

// NormalizeNumber 规范化电话号码：去掉所有非数字字符，保留开头的 "+"
func NormalizeNumber(number string) string {
	var b strings.Builder
	for i, r := range number {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Hasher 对规范化号码做 HMAC-SHA256 keyed hash
// 同一逻辑号码（无论原始格式）永远得到同一 hash。
type Hasher struct {
	key []byte
}

// NewHasher 创建 Hasher
func NewHasher(secret string) *Hasher {
	return &Hasher{key: []byte(secret)}
}

// HashNumber 返回 hex 编码的 HMAC-SHA256(normalize(number))
func (h *Hasher) HashNumber(number string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(NormalizeNumber(number)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Encryptor 字段级对称加密（AES-256-GCM）
// 每个字段独立随机 nonce，nonce 前置在密文里，整体 base64 输出。
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor 从 master secret 派生 AES-256 密钥并创建 Encryptor
func NewEncryptor(masterSecret string) (*Encryptor, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("privacy: master secret is required")
	}
	key := pbkdf2.Key([]byte(masterSecret), keySalt, keyIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("privacy: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("privacy: create gcm: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt 加密一个自由文本字段
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("privacy: nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密一个字段。认证失败时 fail closed：只返回错误，绝不返回部分明文。
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryptFailed
	}
	ns := e.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrDecryptFailed
	}
	plain, err := e.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}
