/*-------------------------------------------------------------------------
 *
 * quality.go
 *    Heuristic reply quality scoring
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/eval/quality.go
 *
 *-------------------------------------------------------------------------
 */

package eval

import (
	"strings"
)

/* ScoreQuality rates one agent reply on [0, 1] from content heuristics.
 * The score feeds the quality aggregate of the rolling evaluation window. */
func ScoreQuality(content string) float64 {
	score := 0.5 /* Base score */

	/* Length check */
	if len(content) < 20 {
		score -= 0.3
	} else if len(content) > 100 {
		score += 0.1
	}

	lower := strings.ToLower(content)

	/* Check for error indicators */
	for _, indicator := range []string{"error", "failed", "unable", "cannot"} {
		if strings.Contains(lower, indicator) {
			score -= 0.2
			break
		}
	}

	/* Check for positive indicators */
	for _, indicator := range []string{"success", "completed", "found", "result"} {
		if strings.Contains(lower, indicator) {
			score += 0.1
			break
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
