package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

func TestPlanTextBareTerms(t *testing.T) {
	pq, err := PlanText("deploy rollback")
	require.NoError(t, err)
	assert.Equal(t, "deploy rollback", pq.MatchExpression)
}

func TestPlanTextDropsShortTerms(t *testing.T) {
	pq, err := PlanText("a deploy to")
	require.NoError(t, err)
	assert.Equal(t, "deploy", pq.MatchExpression)
}

func TestPlanTextQuotedPhrase(t *testing.T) {
	pq, err := PlanText(`"rollback plan" urgent`)
	require.NoError(t, err)
	assert.Equal(t, `"rollback plan" urgent`, pq.MatchExpression)
}

func TestPlanTextFieldPrefix(t *testing.T) {
	pq, err := PlanText("subject:outage body:database")
	require.NoError(t, err)
	assert.Equal(t, "subject:outage body:database", pq.MatchExpression)
}

func TestPlanTextUnrecognizedFieldPrefixKeptLiteral(t *testing.T) {
	pq, err := PlanText("priority:high")
	require.NoError(t, err)
	assert.Equal(t, "priority:high", pq.MatchExpression)
}

func TestPlanTextBooleanOperators(t *testing.T) {
	pq, err := PlanText("deploy AND rollback OR NOT staging")
	require.NoError(t, err)
	assert.Equal(t, "deploy AND rollback OR NOT staging", pq.MatchExpression)
}

func TestPlanTextRejectsLeadingOperator(t *testing.T) {
	_, err := PlanText("AND deploy")
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.InvalidArgument, e.Code)
}

func TestPlanTextRejectsTrailingOperator(t *testing.T) {
	_, err := PlanText("deploy OR")
	require.Error(t, err)
}

func TestPlanTextRejectsAdjacentOperators(t *testing.T) {
	_, err := PlanText("deploy AND OR rollback")
	require.Error(t, err)
}

func TestPlanTextRejectsUnterminatedPhrase(t *testing.T) {
	_, err := PlanText(`"unterminated`)
	require.Error(t, err)
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.InvalidArgument, e.Code)
}

func TestPlanTextEmptyInputYieldsEmptyExpression(t *testing.T) {
	pq, err := PlanText("")
	require.NoError(t, err)
	assert.Empty(t, pq.MatchExpression)
}

func TestPlanTextAllShortTermsYieldEmptyExpression(t *testing.T) {
	pq, err := PlanText("a to i")
	require.NoError(t, err)
	assert.Empty(t, pq.MatchExpression)
}
