// Package ingest decodes recorded UI interaction events, one JSON object
// per line, and replays them into the task collectors.
package ingest

import (
	"time"

	"github.com/dyra-12/cogniviz/internal/collector"
	"github.com/dyra-12/cogniviz/internal/snapshot"
)

// #region event

// Event is one UI interaction. Which fields matter depends on Task and Type.
type Event struct {
	Task string    `json:"task"`
	Type string    `json:"type"`
	TS   time.Time `json:"ts,omitzero"`

	// form and generic targets
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Key     string `json:"key,omitempty"`
	Target  string `json:"target,omitempty"`
	Input   string `json:"input,omitempty"`
	Success *bool  `json:"success,omitempty"`

	// pointer
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	CenterX float64 `json:"center_x,omitempty"`
	CenterY float64 `json:"center_y,omitempty"`

	// product filtering
	FilterType string `json:"filter_type,omitempty"`
	Action     string `json:"action,omitempty"`
	Before     string `json:"before,omitempty"`
	After      string `json:"after,omitempty"`
	ProductID  string `json:"product_id,omitempty"`

	// trip planning
	Tab        string    `json:"tab,omitempty"`
	Area       string    `json:"area,omitempty"`
	Category   string    `json:"category,omitempty"`
	ID         string    `json:"id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Direction  string    `json:"direction,omitempty"`
	Departure  time.Time `json:"departure,omitzero"`
	Arrival    time.Time `json:"arrival,omitzero"`
	Price      float64   `json:"price,omitempty"`
	Stars      int       `json:"stars,omitempty"`
	DistanceKm float64   `json:"distance_km,omitempty"`
	Mode       string    `json:"mode,omitempty"`
	Cause      string    `json:"cause,omitempty"`
	NewTotal   *float64  `json:"new_total,omitempty"`
	ItemPrice  *float64  `json:"item_price,omitempty"`
	MeetingID  string    `json:"meeting_id,omitempty"`
	Day        string    `json:"day,omitempty"`
	Hour       int       `json:"hour,omitempty"`
	Valid      bool      `json:"valid,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

func (e Event) point() snapshot.Point { return snapshot.Point{X: e.X, Y: e.Y} }

func (e Event) success() bool { return e.Success != nil && *e.Success }

func (e Event) flight() collector.Flight {
	return collector.Flight{ID: e.ID, Airline: e.Name, Departure: e.Departure, Arrival: e.Arrival, Price: e.Price}
}

func (e Event) hotel() collector.Hotel {
	return collector.Hotel{ID: e.ID, Name: e.Name, Stars: e.Stars, DistanceKm: e.DistanceKm, TotalPrice: e.Price}
}

func (e Event) transport() collector.Transport {
	return collector.Transport{ID: e.ID, Type: e.Mode, Price: e.Price}
}

func (e Event) budget() collector.BudgetDetail {
	return collector.BudgetDetail{ItemID: e.ID, NewTotal: e.NewTotal, Price: e.ItemPrice}
}

// #endregion event
