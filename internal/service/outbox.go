package service

import (
	"encoding/json"
	"fmt"
	"strconv"

	"sessionbook/internal/models"
	"sessionbook/internal/schedule"
)

// Recipient schemes understood by the notification router.
const (
	RecipientEmail    = "email:"
	RecipientTelegram = "telegram:"
)

// bookingTasks builds the outbox rows written together with a new booking.
func bookingTasks(provider *models.Provider, booking *models.Booking, zone *schedule.Zone) ([]*models.SyncTask, error) {
	var tasks []*models.SyncTask

	if provider.HasCalendar() {
		task, err := newTask(models.TaskCalendarCreate, booking.ID, models.CalendarPayload{
			Calendar: *provider.Calendar,
			Event:    calendarEvent(provider, booking, zone),
		})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	data := notificationData(provider, booking, zone)
	task, err := newTask(models.TaskNotify, booking.ID, models.NotifyPayload{
		Template:  models.TemplateBookingConfirmed,
		Recipient: RecipientEmail + booking.ClientEmail,
		Data:      data,
	})
	if err != nil {
		return nil, err
	}
	tasks = append(tasks, task)

	if provider.TelegramChatID != 0 {
		task, err := newTask(models.TaskNotify, booking.ID, models.NotifyPayload{
			Template:  models.TemplateProviderBooked,
			Recipient: RecipientTelegram + strconv.FormatInt(provider.TelegramChatID, 10),
			Data:      data,
		})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// cancellationTasks builds the outbox rows written together with a cancellation.
func cancellationTasks(provider *models.Provider, booking *models.Booking, zone *schedule.Zone) ([]*models.SyncTask, error) {
	var tasks []*models.SyncTask

	if provider.HasCalendar() || booking.ExternalRef != "" {
		payload := models.CalendarPayload{ExternalID: booking.ExternalRef}
		if provider.Calendar != nil {
			payload.Calendar = *provider.Calendar
		}
		task, err := newTask(models.TaskCalendarDelete, booking.ID, payload)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	task, err := newTask(models.TaskNotify, booking.ID, models.NotifyPayload{
		Template:  models.TemplateBookingCancelled,
		Recipient: RecipientEmail + booking.ClientEmail,
		Data:      notificationData(provider, booking, zone),
	})
	if err != nil {
		return nil, err
	}
	return append(tasks, task), nil
}

func newTask(taskType string, bookingID int64, payload interface{}) (*models.SyncTask, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", taskType, err)
	}
	return &models.SyncTask{
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   string(raw),
		Status:    models.SyncStatusPending,
	}, nil
}

func calendarEvent(provider *models.Provider, booking *models.Booking, zone *schedule.Zone) *models.CalendarEvent {
	description := fmt.Sprintf("%s <%s>", booking.ClientName, booking.ClientEmail)
	if booking.ClientPhone != "" {
		description += "\n" + booking.ClientPhone
	}
	if booking.Notes != "" {
		description += "\n\n" + booking.Notes
	}
	return &models.CalendarEvent{
		Summary:     fmt.Sprintf("%s: %s", provider.DisplayName, booking.ClientName),
		Description: description,
		Start:       booking.StartAt,
		End:         booking.EndAt(),
		Timezone:    zone.Name(),
	}
}

func notificationData(provider *models.Provider, booking *models.Booking, zone *schedule.Zone) map[string]string {
	return map[string]string{
		"booking_id":   strconv.FormatInt(booking.ID, 10),
		"provider":     provider.DisplayName,
		"client_name":  booking.ClientName,
		"client_email": booking.ClientEmail,
		"client_phone": booking.ClientPhone,
		"date":         zone.LocalDate(booking.StartAt),
		"time":         zone.Label(booking.StartAt),
		"end_time":     zone.Label(booking.EndAt()),
		"timezone":     zone.Name(),
		"duration":     strconv.Itoa(booking.Duration),
		"price":        strconv.FormatFloat(booking.Price, 'f', 2, 64),
		"notes":        booking.Notes,
	}
}
