package db

import (
	"gorm.io/gorm"

	"github.com/Arikia/ctrl-x/internal/models"
)

var DB *gorm.DB // 在 main 中赋值，未配置 MySQL 时保持 nil

// SaveMintRecord 保存铸造审计记录
func SaveMintRecord(db *gorm.DB, rec *models.MintRecord) error {
	return db.Save(rec).Error
}

// GetMintRecordByAsset 根据资产地址查询铸造记录
func GetMintRecordByAsset(db *gorm.DB, asset string) (*models.MintRecord, error) {
	var rec models.MintRecord
	err := db.Where("asset_address = ?", asset).First(&rec).Error
	return &rec, err
}

// GetMintRecordBySignature 根据交易签名查询铸造记录
func GetMintRecordBySignature(db *gorm.DB, signature string) (*models.MintRecord, error) {
	var rec models.MintRecord
	err := db.Where("tx_signature = ?", signature).First(&rec).Error
	return &rec, err
}

// ListMintRecords 按时间倒序列出最近的铸造记录
func ListMintRecords(db *gorm.DB, limit int) ([]models.MintRecord, error) {
	var recs []models.MintRecord
	err := db.Order("created_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}

// ListPendingMintRecords 列出等待链上确认的记录（观察者用）
func ListPendingMintRecords(db *gorm.DB, limit int) ([]models.MintRecord, error) {
	var recs []models.MintRecord
	err := db.Where("status = ?", "pending").Limit(limit).Find(&recs).Error
	return recs, err
}

// UpdateMintRecordStatus 根据交易签名更新确认状态
func UpdateMintRecordStatus(db *gorm.DB, signature, status string) error {
	return db.Model(&models.MintRecord{}).
		Where("tx_signature = ?", signature).
		Update("status", status).Error
}
