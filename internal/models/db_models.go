package models

import "gorm.io/gorm"

// MintRecord 铸造审计记录表。
// 只在铸造成功后尽力写入，铸造流程从不读取它（不做去重，两次相同请求铸两个资产）。
type MintRecord struct {
	gorm.Model
	RequestID          string `gorm:"uniqueIndex;size:36"` // 每次请求生成的 UUID
	AssetAddress       string `gorm:"uniqueIndex;size:44"` // 新资产地址
	Collection         string `gorm:"index;size:44"`       // 所属 collection 地址
	Name               string `gorm:"size:255"`            // 资产名称（文章标题）
	MetadataURI        string `gorm:"size:255"`            // 元数据内容地址
	UserWallet         string `gorm:"index;size:44"`       // 用户钱包
	TXSignature        string `gorm:"uniqueIndex;size:88"` // 铸造交易签名
	TokenAccount       string `gorm:"size:44"`             // 关联账户地址
	TokenAccountStatus string `gorm:"size:20"`             // "existing", "created", "failed", "unknown"
	Status             string `gorm:"size:20;default:'pending'"` // "pending", "confirmed", "failed"
}
