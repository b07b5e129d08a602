package notify

import (
	"fmt"

	"github.com/tolkly/bookingd/internal/domain"
)

// Notification type tags carried in the push payload so the apps can
// route taps to the right screen.
const (
	typeSuitableJob        = "suitable_job"
	typeJobAccepted        = "job_accepted"
	typeJobCancelled       = "job_cancelled"
	typeSessionStartRemind = "session_start_remind"
)

func newJobPushMessage(language string, s domain.Snapshot) string {
	if s.Immediate {
		return fmt.Sprintf("Ny akutbokning för %stolk %dmin", language, s.Duration)
	}
	return fmt.Sprintf("Ny bokning för %stolk %dmin %s %s", language, s.Duration, s.DueDate, s.DueTime)
}

func acceptedPushMessage(language string, s domain.Snapshot) string {
	return fmt.Sprintf("Din bokning för %s translators, %dmin, %s %s har accepterats av en tolk. Vänligen öppna appen för att se detaljer om tolken.",
		language, s.Duration, s.DueDate, s.DueTime)
}

func cancelledByCustomerPushMessage(language string, s domain.Snapshot) string {
	return fmt.Sprintf("Kunden har avbokat bokningen för %stolk, %dmin, %s %s. Var god och kolla dina tidigare bokningar för detaljer.",
		language, s.Duration, s.DueDate, s.DueTime)
}

func cancelledByTranslatorPushMessage(language string, s domain.Snapshot) string {
	return fmt.Sprintf("Er %stolk, %dmin %s %s, har avbokat tolkningen. Vi letar nu efter en ny tolk som kan ersätta denne. Tack.",
		language, s.Duration, s.DueDate, s.DueTime)
}

func sessionStartRemindMessage(language string, s domain.Snapshot) string {
	if s.PhysicalAllowed && !s.PhoneAllowed {
		return fmt.Sprintf("Detta är en påminnelse om att du har en %stolkning (på plats i %s) kl %s på %s som vara i %d min. Lycka till och kom ihåg att ge feedback efter utförd tolkning!",
			language, s.CustomerTown, s.DueTime, s.DueDate, s.Duration)
	}
	return fmt.Sprintf("Detta är en påminnelse om att du har en %stolkning (telefon) kl %s på %s som vara i %d min. Lycka till och kom ihåg att ge feedback efter utförd tolkning!",
		language, s.DueTime, s.DueDate, s.Duration)
}

// smsMessage picks the on-site wording only for bookings that must happen
// in person; everything else falls back to the phone wording.
func smsMessage(s domain.Snapshot) string {
	duration := convertToHoursMins(s.Duration)
	if s.PhysicalAllowed && !s.PhoneAllowed {
		return fmt.Sprintf("Du har nu fått platstolkningen för %s kl %s i %s på %s. Alla detaljer finns på din kontrollpanel. Tack!",
			s.DueDate, s.DueTime, s.CustomerTown, duration)
	}
	return fmt.Sprintf("Du har nu fått telefontolkningen för %s kl %s på %s. Alla detaljer finns på din kontrollpanel. Tack!",
		s.DueDate, s.DueTime, duration)
}

// convertToHoursMins renders a duration in minutes the way the SMS texts
// expect: "30min", "1h", "01h 30min".
func convertToHoursMins(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dmin", minutes)
	}
	if minutes == 60 {
		return "1h"
	}
	return fmt.Sprintf("%02dh %02dmin", minutes/60, minutes%60)
}

// Email subjects. The stray parenthesis in the reassignment subject is
// kept for parity with the historical correspondence.
func subjectBookingReceived(s domain.Snapshot) string {
	return fmt.Sprintf("Vi har mottagit er tolkbokning. Bokningsnr: #%s", s.JobID)
}

func subjectBookingReopened(language string, s domain.Snapshot) string {
	return fmt.Sprintf("Vi har nu återöppnat er bokning av %stolk för bokning #%s", language, s.JobID)
}

func subjectBookingAccepted(s domain.Snapshot) string {
	return fmt.Sprintf("Bekräftelse - tolk har accepterat er bokning (bokning # %s)", s.JobID)
}

func subjectSessionEnded(s domain.Snapshot) string {
	return fmt.Sprintf("Information om avslutad tolkning för bokningsnummer # %s", s.JobID)
}

func subjectTranslatorChanged(s domain.Snapshot) string {
	return fmt.Sprintf("Meddelande om tilldelning av tolkuppdrag för uppdrag # %s)", s.JobID)
}

func subjectBookingChanged(s domain.Snapshot) string {
	return fmt.Sprintf("Meddelande om ändring av tolkbokning för uppdrag # %s", s.JobID)
}

func subjectBookingCancelled(s domain.Snapshot) string {
	return fmt.Sprintf("Avbokning av bokningsnr: #%s", s.JobID)
}
