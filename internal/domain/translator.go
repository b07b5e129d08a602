package domain

import "github.com/google/uuid"

type TranslatorType string

const (
	TranslatorProfessional TranslatorType = "professional"
	TranslatorRWS          TranslatorType = "rwstranslator"
	TranslatorVolunteer    TranslatorType = "volunteer"
)

type TranslatorLevel string

const (
	LevelCertified       TranslatorLevel = "Certified"
	LevelCertifiedLaw    TranslatorLevel = "Certified with specialisation in law"
	LevelCertifiedHealth TranslatorLevel = "Certified with specialisation in health care"
	LevelLayman          TranslatorLevel = "Layman"
	LevelReadCourses     TranslatorLevel = "Read Translation courses"
)

// TranslatorProfile is the read-only view of a translator used by the
// matcher and the notification dispatcher. Account management lives
// outside this service.
type TranslatorProfile struct {
	ID     uuid.UUID
	Name   string
	Email  string
	Mobile string

	Type      TranslatorType
	Level     TranslatorLevel
	Gender    Gender
	Languages []uuid.UUID
	Town      string

	// Do-not-disturb preferences.
	NoPush          bool // never push
	NoNightPush     bool // delay push to the next business moment at night
	NoEmergencyPush bool // skip pushes for immediate bookings

	// NoDirectedJobs bars the translator from accepting bookings that were
	// explicitly directed to another translator.
	NoDirectedJobs bool
}

// JobTypeFor maps a translator type to the job type that translator serves.
func JobTypeFor(t TranslatorType) JobType {
	switch t {
	case TranslatorProfessional:
		return JobTypePaid
	case TranslatorRWS:
		return JobTypeRWS
	default:
		return JobTypeUnpaid
	}
}

// TranslatorTypeFor is the inverse mapping, used when selecting SMS and
// push candidates for a job.
func TranslatorTypeFor(t JobType) TranslatorType {
	switch t {
	case JobTypePaid:
		return TranslatorProfessional
	case JobTypeRWS:
		return TranslatorRWS
	default:
		return TranslatorVolunteer
	}
}

// LevelsFor returns the translator levels a certification requirement
// admits. An unset requirement admits every level.
func LevelsFor(c Certification) []TranslatorLevel {
	switch c {
	case CertificationYes, CertificationBoth:
		return []TranslatorLevel{LevelCertified, LevelCertifiedLaw, LevelCertifiedHealth}
	case CertificationLaw, CertificationNLaw:
		return []TranslatorLevel{LevelCertifiedLaw}
	case CertificationHealth, CertificationNHealth:
		return []TranslatorLevel{LevelCertifiedHealth}
	case CertificationNormal:
		return []TranslatorLevel{LevelLayman, LevelReadCourses}
	default:
		return []TranslatorLevel{LevelCertified, LevelCertifiedLaw, LevelCertifiedHealth, LevelLayman, LevelReadCourses}
	}
}
