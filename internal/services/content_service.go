package services

import (
	"bytes"
	"compress/zlib"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/viper"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/Arikia/ctrl-x/internal/models"
)

var (
	ErrCodecNotConfigured   = errors.New("content codec not configured")
	ErrEncryptNotConfigured = errors.New("encryption key not configured")
	ErrCiphertextTooShort   = errors.New("ciphertext too short")
)

// Codec 正文压缩编解码器。实现由配置（content.codec）在进程启动时选定，
// 而不是在请求路径上做运行时探测。
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// zlibCodec 基于 zlib(deflate) 的默认实现
type zlibCodec struct{}

func (zlibCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

var (
	ContentCodec Codec       // 进程级编解码器，InitContent 中赋值
	aead         cipher.AEAD // XChaCha20-Poly1305，密钥来自配置
)

// InitContent initializes the content codec and the symmetric cipher from config.
// It reads content.codec ("zlib", default) and content.encryption_key
// (base64, must decode to 32 bytes).
func InitContent() error {
	codecName := viper.GetString("content.codec")
	if codecName == "" {
		codecName = "zlib"
	}
	switch codecName {
	case "zlib":
		ContentCodec = zlibCodec{}
	default:
		return fmt.Errorf("unknown content codec: %s", codecName)
	}

	keyB64 := viper.GetString("content.encryption_key")
	if keyB64 == "" {
		return errors.New("content.encryption_key is empty in config")
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return errors.New("failed to decode content.encryption_key as base64: " + err.Error())
	}
	if len(key) != chacha20poly1305.KeySize {
		return fmt.Errorf("content.encryption_key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	aead, err = chacha20poly1305.NewX(key)
	if err != nil {
		return err
	}
	return nil
}

// PrepareText 把文章正文压缩、base64 编码后加密，返回可放入元数据的密文。
// 逆向操作：DecryptText 后 base64 解码再 Decompress。
func PrepareText(text string) (string, error) {
	if ContentCodec == nil {
		return "", ErrCodecNotConfigured
	}
	compressed, err := ContentCodec.Compress([]byte(text))
	if err != nil {
		return "", err
	}
	encoded := base64.StdEncoding.EncodeToString(compressed)
	return EncryptText(encoded)
}

// EncryptText 加密字符串，输出 base64(nonce || ciphertext)
func EncryptText(plaintext string) (string, error) {
	if aead == nil {
		return "", ErrEncryptNotConfigured
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptText EncryptText 的逆操作
func DecryptText(ciphertext string) (string, error) {
	if aead == nil {
		return "", ErrEncryptNotConfigured
	}
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	if len(sealed) < aead.NonceSize() {
		return "", ErrCiphertextTooShort
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// BuildMetadata 组装待上传的元数据对象
func BuildMetadata(req *models.MintRequest, imageURI, encryption string) *models.Metadata {
	return &models.Metadata{
		Title:          req.Title,
		ImageURI:       imageURI,
		Author:         req.Author,
		PublishedAt:    req.PublishedAt,
		PublishedWhere: req.PublishedWhere,
		Encryption:     encryption,
	}
}
