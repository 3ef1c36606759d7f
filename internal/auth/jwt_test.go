package auth

import (
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue("profile-1", RoleStudent, "class-portal", "secret", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name    string
		token   string
		key     string
		issuer  string
		wantErr bool
	}{
		{name: "valid access token", token: pair.AccessToken, key: "secret", issuer: "class-portal"},
		{name: "valid refresh token", token: pair.RefreshToken, key: "secret", issuer: "class-portal"},
		{name: "wrong key", token: pair.AccessToken, key: "other", issuer: "class-portal", wantErr: true},
		{name: "wrong issuer", token: pair.AccessToken, key: "secret", issuer: "someone-else", wantErr: true},
		{name: "garbage", token: "not.a.token", key: "secret", issuer: "class-portal", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := Parse(tt.token, tt.key, tt.issuer)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				if claims.Subject != "profile-1" || claims.Role != RoleStudent {
					t.Errorf("claims = %+v, want subject profile-1 role student", claims)
				}
			}
		})
	}
}

func TestIssueExpiry(t *testing.T) {
	pair, err := Issue("profile-1", RoleAdmin, "class-portal", "secret", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := Parse(pair.AccessToken, "secret", "class-portal"); err == nil {
		t.Error("Parse() accepted an expired token")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := CheckPassword(hash, "s3cret-pass"); err != nil {
		t.Errorf("CheckPassword() with correct password: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Error("CheckPassword() accepted a wrong password")
	}
}
