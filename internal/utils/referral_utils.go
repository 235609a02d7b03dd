package utils

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

// GenerateReferralCode выпускает новый реферальный код: 12 hex-символов
// из UUID. Уникальность окончательно гарантирует ограничение в БД.
// GenerateReferralCode issues a new referral code: 12 hex characters
// from a UUID. The DB constraint is the final uniqueness guarantee.
func GenerateReferralCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// GenerateReferralLink генерирует реферальную ссылку для пользователя.
// linkBase должен передаваться, так как это конфигурационное значение.
// GenerateReferralLink builds the user's referral link. linkBase is a
// configuration value and must be passed in.
func GenerateReferralLink(linkBase, referralCode string) (string, error) {
	if linkBase == "" {
		log.Println("GenerateReferralLink: linkBase не предоставлен.")
		return "", fmt.Errorf("базовый адрес реферальной ссылки не настроен")
	}
	if referralCode == "" {
		return "", fmt.Errorf("пустой реферальный код")
	}
	return fmt.Sprintf("%s?ref=%s", linkBase, referralCode), nil
}

// GenerateQRCode генерирует QR-код для реферальной ссылки.
// GenerateQRCode renders the referral link as a PNG QR code.
func GenerateQRCode(linkBase, referralCode string) ([]byte, error) {
	link, err := GenerateReferralLink(linkBase, referralCode)
	if err != nil {
		log.Printf("GenerateQRCode: ошибка генерации реферальной ссылки для QR-кода (код %s): %v", referralCode, err)
		return nil, err
	}

	// qrcode.Medium - уровень коррекции ошибок, 256 - размер QR-кода в пикселях.
	qrBytes, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		log.Printf("GenerateQRCode: ошибка кодирования QR-кода для ссылки '%s': %v", link, err)
		return nil, err
	}
	return qrBytes, nil
}
