package utils

import (
	"fmt"
	"log"
	"regexp"
	"strings"

	"refpay/internal/constants"
)

// ValidatePhoneNumber проверяет и нормализует номер телефона.
// Возвращает номер в формате +7XXXXXXXXXX или ошибку.
// ValidatePhoneNumber checks and normalizes a phone number.
// Returns the number in +7XXXXXXXXXX format or an error.
func ValidatePhoneNumber(phone string) (string, error) {
	phone = strings.TrimSpace(phone)

	// Удаляем все нечисловые символы, кроме начального '+'
	// Remove all non-numeric characters except for the initial '+'
	digitsOnly := regexp.MustCompile(`[^\d+]`).ReplaceAllString(phone, "")

	if strings.HasPrefix(digitsOnly, "+") {
		if regexp.MustCompile(`^\+7\d{10}$`).MatchString(digitsOnly) {
			return digitsOnly, nil
		}
		return "", fmt.Errorf("поддерживаются только номера в формате +7XXXXXXXXXX или 8XXXXXXXXXX")
	}

	digitsOnly = regexp.MustCompile(`[^\d]`).ReplaceAllString(phone, "")

	if len(digitsOnly) == 11 && (digitsOnly[0] == '8' || digitsOnly[0] == '7') { // 8XXXXXXXXXX или 7XXXXXXXXXX
		return "+7" + digitsOnly[1:], nil
	}
	if len(digitsOnly) == 10 { // XXXXXXXXXX
		return "+7" + digitsOnly, nil
	}
	return "", fmt.Errorf("неверный формат номера телефона")
}

// ValidatePassword проверяет минимальные требования к паролю.
// ValidatePassword enforces the minimum password requirements.
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("пароль должен содержать не менее 6 символов")
	}
	return nil
}

// IsRoleOrHigher проверяет, соответствует ли роль пользователя минимально требуемой роли.
// IsRoleOrHigher checks if the user's role meets the minimum required role.
func IsRoleOrHigher(userRole string, requiredRole string) bool {
	roleHierarchy := map[string]int{
		constants.ROLE_USER:  0,
		constants.ROLE_ADMIN: 1,
	}

	userLevel, okUser := roleHierarchy[userRole]
	requiredLevel, okRequired := roleHierarchy[requiredRole]

	if !okUser || !okRequired {
		log.Printf("IsRoleOrHigher: неизвестная роль при сравнении: userRole='%s', requiredRole='%s'", userRole, requiredRole)
		return false
	}
	return userLevel >= requiredLevel
}
