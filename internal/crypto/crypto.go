package crypto

import "crypto/sha256"

// TokenHash 对会话令牌明文做单向散列，数据库中只存散列值。
func TokenHash(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
