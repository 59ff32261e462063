package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostCloneIsDeep(t *testing.T) {
	now := time.Now()
	p := &Post{
		ID:             "p1",
		RequiredSkills: []string{"go"},
		Applications:   []Application{{ID: "a1", FreelancerID: "f1", Status: ApplicationPending}},
		Finalization:   Finalization{Status: FinalizationSubmitted, Files: []string{"f.zip"}, SubmittedAt: &now},
	}

	c := p.Clone()
	c.RequiredSkills[0] = "rust"
	c.Applications[0].Status = ApplicationAccepted
	c.Finalization.Files[0] = "other.zip"
	*c.Finalization.SubmittedAt = now.Add(time.Hour)

	assert.Equal(t, "go", p.RequiredSkills[0])
	assert.Equal(t, ApplicationPending, p.Applications[0].Status)
	assert.Equal(t, "f.zip", p.Finalization.Files[0])
	assert.True(t, p.Finalization.SubmittedAt.Equal(now))
}

func TestPostLookups(t *testing.T) {
	p := &Post{
		Applications: []Application{
			{ID: "a1", FreelancerID: "f1", Status: ApplicationRejected},
			{ID: "a2", FreelancerID: "f2", Status: ApplicationAccepted},
		},
		Reviews: []Review{{ID: "r1", AuthorID: "c1"}},
	}

	require.NotNil(t, p.AcceptedApplication())
	assert.Equal(t, "a2", p.AcceptedApplication().ID)
	assert.Equal(t, "f1", p.ApplicationByID("a1").FreelancerID)
	assert.Nil(t, p.ApplicationByID("missing"))
	assert.Equal(t, "a2", p.ApplicationByFreelancer("f2").ID)
	assert.True(t, p.IsAcceptedFreelancer("f2"))
	assert.False(t, p.IsAcceptedFreelancer("f1"))
	assert.NotNil(t, p.ReviewByAuthor("c1"))
	assert.Nil(t, p.ReviewByAuthor("f2"))
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, PostCompleted.IsTerminal())
	assert.False(t, PostInProgress.IsTerminal())
	assert.True(t, PaymentSucceeded.IsTerminal())
	assert.False(t, PaymentPending.IsTerminal())
	assert.True(t, RoleClient.Valid())
	assert.False(t, Role("admin").Valid())
}
