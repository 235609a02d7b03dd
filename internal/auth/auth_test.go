package auth

import "testing"

func TestTokenRoundTrip(t *testing.T) {
	secret := "test-secret"
	token, err := GenerateToken(secret, 42, "admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != 42 || claims.Role != "admin" {
		t.Fatalf("неверные claims: %+v", claims)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret-a", 1, "user")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ValidateToken("secret-b", token); err == nil {
		t.Fatal("ожидалась ошибка для чужого секрета")
	}
}

func TestPasswordHashAndCheck(t *testing.T) {
	hash, err := HashPassword("secret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "secret-pass" {
		t.Fatal("пароль не должен храниться открытым текстом")
	}
	if !CheckPassword(hash, "secret-pass") {
		t.Fatal("верный пароль не прошел проверку")
	}
	if CheckPassword(hash, "wrong-pass") {
		t.Fatal("неверный пароль прошел проверку")
	}
}
