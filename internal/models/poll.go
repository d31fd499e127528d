package models

import (
	"slices"
	"time"
)

// Poll is embedded in a Post and stored with it.
type Poll struct {
	Question           string       `json:"question"`
	Options            []PollOption `json:"options"`
	EndsAt             time.Time    `json:"ends_at"`
	AllowMultipleVotes bool         `json:"allow_multiple_votes"`
}

type PollOption struct {
	Text   string   `json:"text"`
	Voters []string `json:"voters"`
}

func (p *Poll) Clone() *Poll {
	if p == nil {
		return nil
	}
	out := *p
	out.Options = make([]PollOption, len(p.Options))
	for i, o := range p.Options {
		out.Options[i] = PollOption{Text: o.Text, Voters: append([]string(nil), o.Voters...)}
	}
	return &out
}

func (p *Poll) Closed(now time.Time) bool {
	return !now.Before(p.EndsAt)
}

func (o *PollOption) HasVoter(actorID string) bool {
	return slices.Contains(o.Voters, actorID)
}

// AddVoter is a no-op if the actor is already present.
func (o *PollOption) AddVoter(actorID string) bool {
	if o.HasVoter(actorID) {
		return false
	}
	o.Voters = append(o.Voters, actorID)
	return true
}

func (o *PollOption) RemoveVoter(actorID string) bool {
	i := slices.Index(o.Voters, actorID)
	if i < 0 {
		return false
	}
	o.Voters = slices.Delete(o.Voters, i, i+1)
	return true
}
