package models

import (
	"time"

	"github.com/google/uuid"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleCidadao  Role = "cidadao"
	RoleAdvogado Role = "advogado"
	RoleAdmin    Role = "admin"
)

// CasoStatus defines lifecycle states for a caso.
type CasoStatus string

const (
	CasoPendenteAtivacao CasoStatus = "PENDENTE_ATIVACAO"
	CasoAberto           CasoStatus = "ABERTO"
	CasoEmAndamento      CasoStatus = "EM_ANDAMENTO"
	CasoFechado          CasoStatus = "FECHADO"
	CasoCancelado        CasoStatus = "CANCELADO"
)

// Urgencia classifies how quickly a caso needs attention.
type Urgencia string

const (
	UrgenciaBaixa   Urgencia = "BAIXA"
	UrgenciaNormal  Urgencia = "NORMAL"
	UrgenciaAlta    Urgencia = "ALTA"
	UrgenciaUrgente Urgencia = "URGENTE"
)

// MatchStatus defines lifecycle states for a match offer.
type MatchStatus string

const (
	MatchPendente    MatchStatus = "PENDENTE"
	MatchVisualizado MatchStatus = "VISUALIZADO"
	MatchAceito      MatchStatus = "ACEITO"
	MatchRecusado    MatchStatus = "RECUSADO"
	MatchContratado  MatchStatus = "CONTRATADO"
	MatchExpirado    MatchStatus = "EXPIRADO"
)

// SettingType tags the value type of a system setting.
type SettingType string

const (
	SettingString  SettingType = "STRING"
	SettingNumber  SettingType = "NUMBER"
	SettingBoolean SettingType = "BOOLEAN"
)

// SubscriptionStatus defines lifecycle states for a plan subscription.
type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "pending"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// QuotaUnlimited is the sentinel monthly quota for plans without a lead cap.
const QuotaUnlimited = -1

// FreePlanCode is the tier every advogado starts on; it never expires.
const FreePlanCode = "free"

// FreeMonthlyLeadQuota is the free tier's monthly lead cap, applied when a
// paid subscription lapses or is cancelled.
const FreeMonthlyLeadQuota = 3

/* =============================== Entities =============================== */

// User represents a cidadão, an advogado or an admin account.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	Role         Role      `gorm:"type:varchar(20);not null"`
	Name         string
	City         string
	State        string `gorm:"type:varchar(2)"`
	CreatedAt    time.Time
}

// Caso represents a citizen's legal problem submitted for distribution.
type Caso struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CidadaoID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Title        string    `gorm:"not null"`
	Description  string
	AISummary    string     // optional AI-derived summary from the anonymous chat funnel
	Specialty    *string    `gorm:"type:varchar(60);index"`
	Urgencia     Urgencia   `gorm:"type:varchar(10);default:'NORMAL'"`
	Status       CasoStatus `gorm:"type:varchar(20);default:'ABERTO';index"`
	City         string
	State        string `gorm:"type:varchar(2)"`
	Conversation string `gorm:"type:text"` // anonymous-chat history blob, if the caso was converted
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Relations
	Matches []Match `gorm:"foreignKey:CasoID"`
}

// LawyerProfile holds the matching-relevant profile of an advogado.
type LawyerProfile struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	OABNumber string    `gorm:"type:varchar(40)"`
	OABState  string    `gorm:"type:varchar(2)"`
	Verified  bool      `gorm:"default:false"`
	Approved  bool      `gorm:"default:false;index"`

	City  string
	State string `gorm:"type:varchar(2)"`

	OnboardingDone     bool `gorm:"default:false"`
	OnlineConsultation bool `gorm:"default:false"`
	HourlyPriceCents   int  `gorm:"default:0"`

	PlanCode         string     `gorm:"type:varchar(30);default:'free'"`
	MonthlyLeadQuota int        `gorm:"default:3"` // -1 = unlimited
	LeadsReceived    int        `gorm:"default:0"`
	QuotaResetAt     time.Time  `gorm:"not null;default:now()"`
	LastMatchedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	// Relations
	Specialties []LawyerSpecialty `gorm:"foreignKey:LawyerProfileID"`
}

// LawyerSpecialty is one specialty tag attached to a lawyer profile.
type LawyerSpecialty struct {
	ID              uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	LawyerProfileID uuid.UUID `gorm:"type:uuid;not null;index:idx_lawyer_specialty,unique"`
	Specialty       string    `gorm:"type:varchar(60);not null;index:idx_lawyer_specialty,unique"`
}

// Match represents one offer of a caso to one advogado.
//
// The composite unique index on (caso_id, lawyer_profile_id) is the storage
// guarantee behind the one-match-per-caso-per-lawyer invariant; concurrent
// distribution runs rely on it rather than on application-level checks.
type Match struct {
	ID              uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CasoID          uuid.UUID   `gorm:"type:uuid;not null;index:idx_caso_lawyer,unique"`
	LawyerProfileID uuid.UUID   `gorm:"type:uuid;not null;index:idx_caso_lawyer,unique"`
	Score           int         `gorm:"not null"`
	Status          MatchStatus `gorm:"type:varchar(20);default:'PENDENTE';index"`
	SentAt          time.Time   `gorm:"not null"`
	ViewedAt        *time.Time
	RespondedAt     *time.Time
	ExpiresAt       time.Time `gorm:"not null;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SystemSetting is a typed key/value setting controlling matching behaviour.
type SystemSetting struct {
	ID          uuid.UUID   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Key         string      `gorm:"uniqueIndex;not null"`
	Value       string      `gorm:"not null"`
	Type        SettingType `gorm:"type:varchar(10);not null"`
	Category    string      `gorm:"type:varchar(40)"`
	Description string
	UpdatedAt   time.Time
}

// Plan is a subscription tier limiting monthly lead volume.
type Plan struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code             string    `gorm:"uniqueIndex;not null"`
	Name             string    `gorm:"not null"`
	MonthlyLeadQuota int       `gorm:"not null"` // -1 = unlimited
	PriceCents       int       `gorm:"not null"`
	StripePriceID    string
	CreatedAt        time.Time
}

// Subscription links an advogado to a plan through billing.
type Subscription struct {
	ID               uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	LawyerProfileID  uuid.UUID          `gorm:"type:uuid;not null;index"`
	PlanCode         string             `gorm:"type:varchar(30);not null"`
	Status           SubscriptionStatus `gorm:"type:varchar(20);default:'pending'"`
	StripeSessionID  *string            `gorm:"uniqueIndex:ux_sub_session_filled"`
	CurrentPeriodEnd *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ChatMessage is one message exchanged inside an accepted match.
type ChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	MatchID   uuid.UUID `gorm:"type:uuid;not null;index"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null"`
	Body      string    `gorm:"type:text;not null"`
	CreatedAt time.Time
}

// CasoEvent is an audit log entry for important caso and match changes.
type CasoEvent struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CasoID    uuid.UUID `gorm:"type:uuid;not null;index"`
	ActorID   uuid.UUID `gorm:"type:uuid;index"` // who performed the action (cidadao/advogado/system)
	Action    string    `gorm:"type:varchar(50);not null"`
	OldStatus string    `gorm:"type:varchar(20)"`
	NewStatus string    `gorm:"type:varchar(20)"`
	Reason    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
