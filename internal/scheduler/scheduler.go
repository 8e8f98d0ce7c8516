// Package scheduler delivers the daily phrase to subscribed users.
package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/anatilbot/pkg/models"
)

// UserSource lists the users whose daily phrase is due at a given hour.
type UserSource interface {
	UsersForNotification(hour int) ([]models.User, error)
}

// Notifier sends the phrase of the day to one user.
type Notifier interface {
	SendDailyPhrase(userID int64) error
}

// Scheduler manages scheduled tasks for the application.
type Scheduler struct {
	scheduler *gocron.Scheduler
	users     UserSource
	notifier  Notifier
}

// New creates a new scheduler instance.
func New(users UserSource, notifier Notifier) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		users:     users,
		notifier:  notifier,
	}
}

// Start begins running all scheduled tasks.
func (s *Scheduler) Start() {
	// Check every hour which users are due their phrase at that hour
	s.scheduler.Every(1).Hour().Do(s.sendDuePhrases)
	s.scheduler.StartAsync()
}

// Stop terminates all scheduled tasks.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// sendDuePhrases sends the daily phrase to every user subscribed for the
// current hour.
func (s *Scheduler) sendDuePhrases() {
	hour := time.Now().Hour()

	users, err := s.users.UsersForNotification(hour)
	if err != nil {
		log.Printf("Error getting users for notification: %v", err)
		return
	}

	for _, user := range users {
		if err := s.notifier.SendDailyPhrase(user.TelegramID); err != nil {
			log.Printf("Error sending daily phrase to user %d: %v", user.TelegramID, err)
		}
	}
}
