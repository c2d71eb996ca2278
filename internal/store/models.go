package store

import "time"

type Company struct {
	ID        string
	Name      string
	CORNumber string
	Province  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type User struct {
	ID                    string
	CompanyID             string
	DisplayName           string
	Email                 string
	PasswordHash          string
	Role                  string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type FormTemplate struct {
	ID          string
	Code        string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type FormSubmission struct {
	ID            string
	CompanyID     string
	TemplateID    string
	Status        string
	Summary       string
	SubmittedBy   string
	SubmittedAt   time.Time
	AttachmentKey string
	CreatedAt     time.Time
}

type EvidenceMapping struct {
	ID           string
	CompanyID    string
	EvidenceType string
	EvidenceID   string
	QuestionID   string
	Confidence   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
