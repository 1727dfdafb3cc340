package database

import (
	"fmt"
	"time"
)

type User struct {
	ID                    int       `json:"id"`
	Provider              string    `json:"provider"`
	ProviderID            string    `json:"provider_id"`
	Email                 string    `json:"email"`
	Name                  string    `json:"name"`
	AvatarURL             string    `json:"avatar_url"`
	DefaultParaphe        string    `json:"default_paraphe"`
	Phone                 string    `json:"phone"`
	AuthenticatorEnrolled bool      `json:"authenticator_enrolled"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// CreateOrUpdateUser upserts a user on their OAuth identity.
func (s *service) CreateOrUpdateUser(user *User) error {
	query := `
		INSERT INTO users (provider, provider_id, email, name, avatar_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (provider, provider_id)
		DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRow(query, user.Provider, user.ProviderID, user.Email, user.Name, user.AvatarURL).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	return err
}

// GetUserByID retrieves a user by ID
func (s *service) GetUserByID(id int) (*User, error) {
	user := &User{}
	query := `SELECT id, provider, provider_id, email, name, avatar_url, COALESCE(default_paraphe, ''),
					 COALESCE(phone, ''), authenticator_enrolled, created_at, updated_at
			  FROM users WHERE id = $1`

	err := s.db.QueryRow(query, id).Scan(
		&user.ID, &user.Provider, &user.ProviderID, &user.Email,
		&user.Name, &user.AvatarURL, &user.DefaultParaphe,
		&user.Phone, &user.AuthenticatorEnrolled, &user.CreatedAt, &user.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return user, nil
}

// UpdateDefaultParaphe saves the user's default initials mark, offered as
// the prefill for paraphe fields when they sign.
func (s *service) UpdateDefaultParaphe(id int, paraphe string) error {
	result, err := s.db.Exec(`UPDATE users SET default_paraphe = $2, updated_at = NOW() WHERE id = $1`, id, paraphe)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// UpdatePhone saves the phone number SMS challenge codes go to. An empty
// value clears it, which withdraws SMS as a configured factor.
func (s *service) UpdatePhone(id int, phone string) error {
	result, err := s.db.Exec(`UPDATE users SET phone = $2, updated_at = NOW() WHERE id = $1`, id, phone)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found")
	}
	return nil
}

// GetUserByEmail retrieves a user by email. Used to weakly link signatories
// to platform accounts when a document is sent.
func (s *service) GetUserByEmail(email string) (*User, error) {
	user := &User{}
	query := `SELECT id, provider, provider_id, email, name, avatar_url, COALESCE(default_paraphe, ''),
					 COALESCE(phone, ''), authenticator_enrolled, created_at, updated_at
			  FROM users WHERE email = $1`

	err := s.db.QueryRow(query, email).Scan(
		&user.ID, &user.Provider, &user.ProviderID, &user.Email,
		&user.Name, &user.AvatarURL, &user.DefaultParaphe,
		&user.Phone, &user.AuthenticatorEnrolled, &user.CreatedAt, &user.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return user, nil
}
