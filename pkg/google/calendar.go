package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

// CalendarClient is a Google Calendar API client bound to one calendar.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
}

func NewCalendarClient(srv *calendar.Service, calendarID string) *CalendarClient {
	return &CalendarClient{srv: srv, calendarID: calendarID}
}

// Get fetches an event. A missing or cancelled event yields nil, nil.
func (c *CalendarClient) Get(ctx context.Context, eventID string) (*calendar.Event, error) {
	ev, err := c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
	if isGone(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ev.Status == "cancelled" {
		return nil, nil
	}
	return ev, nil
}

// FindByTaskID searches for the event carrying the task's private property.
func (c *CalendarClient) FindByTaskID(ctx context.Context, taskID string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", TaskIDProperty, taskID)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}

// ListExported returns every event this tool created on the calendar.
func (c *CalendarClient) ListExported(ctx context.Context) ([]*calendar.Event, error) {
	var out []*calendar.Event
	err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", markerProperty, markerValue)).
		Pages(ctx, func(page *calendar.Events) error {
			out = append(out, page.Items...)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events from calendar: %w", err)
	}
	return out, nil
}

func (c *CalendarClient) Insert(ctx context.Context, ev *calendar.Event) (*calendar.Event, error) {
	return c.srv.Events.Insert(c.calendarID, ev).Context(ctx).Do()
}

// Patch performs a partial update on an event.
func (c *CalendarClient) Patch(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	return c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
}

// Delete removes an event. Deleting an event that is already gone is not
// an error.
func (c *CalendarClient) Delete(ctx context.Context, eventID string) error {
	err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	if isGone(err) {
		return nil
	}
	return err
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
}
