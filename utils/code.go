package utils

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ParseSecretKeyJSON 解析 JSON 字节数组格式的私钥（Solana CLI keypair 文件格式）。
// 例如 "[12,34,...]"，长度必须为 64 字节。
func ParseSecretKeyJSON(secret string) (solana.PrivateKey, error) {
	var raw []int
	if err := json.Unmarshal([]byte(secret), &raw); err != nil {
		return nil, errors.New("secret key is not a JSON byte array: " + err.Error())
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("secret key must be 64 bytes, got %d", len(raw))
	}
	key := make(solana.PrivateKey, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("secret key byte %d out of range: %d", i, v)
		}
		key[i] = byte(v)
	}
	// 校验私钥能导出合法公钥（导出失败会 panic，提前拦截坏配置）
	if key.PublicKey().IsZero() {
		return nil, errors.New("secret key derives a zero public key")
	}
	return key, nil
}

// ExplorerTxURL 构造区块浏览器交易链接
func ExplorerTxURL(signature solana.Signature, cluster string) string {
	return fmt.Sprintf("https://solana.fm/tx/%s?cluster=%s", signature.String(), cluster)
}
