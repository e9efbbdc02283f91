package review

// Reconcile computes the unified severity, confidence and status of a
// cluster. The returned cluster is final; callers must not mutate it.
func Reconcile(c Cluster, cfg MatchConfig) Cluster {
	var defects, assertions []Finding
	for _, m := range c.Members {
		if m.Kind == KindNoIssue {
			assertions = append(assertions, m)
		} else {
			defects = append(defects, m)
		}
	}

	c.Affirmation = len(defects) == 0
	c.UnifiedSeverity, c.Confidence = unifySeverity(defects, assertions)

	switch {
	case len(c.Members) < 2:
		c.Status = StatusSourceOnly
	case len(defects) > 0 && len(assertions) > 0:
		c.Status = StatusContradiction
	case severityConflict(defects):
		c.Status = StatusContradiction
	default:
		c.Status = StatusConsensus
		c.CategoryConflict = categoryConflict(defects, cfg)
	}
	return c
}

// ReconcileAll reconciles every cluster in order.
func ReconcileAll(clusters []Cluster, cfg MatchConfig) []Cluster {
	out := make([]Cluster, len(clusters))
	for i, c := range clusters {
		out[i] = Reconcile(c, cfg)
	}
	return out
}

// unifySeverity picks the most severe certain defect. If every defect is
// uncertain the most severe one is used and the cluster is uncertain.
// Affirmation clusters keep the most severe assertion placeholder.
func unifySeverity(defects, assertions []Finding) (Severity, Confidence) {
	pool := defects
	if len(pool) == 0 {
		pool = assertions
	}

	var certain, top Severity
	for _, m := range pool {
		if top == "" || m.Severity.MoreSevere(top) {
			top = m.Severity
		}
		if m.Certain() && (certain == "" || m.Severity.MoreSevere(certain)) {
			certain = m.Severity
		}
	}
	if certain != "" {
		return certain, ConfidenceCertain
	}
	return top, ConfidenceUncertain
}

// severityConflict reports two defects from distinct sources that are two or
// more levels apart. Members of one cluster already come from distinct
// sources at the same location.
func severityConflict(defects []Finding) bool {
	for i := 0; i < len(defects); i++ {
		for j := i + 1; j < len(defects); j++ {
			if levelGap(defects[i].Severity, defects[j].Severity) >= 2 {
				return true
			}
		}
	}
	return false
}

// categoryConflict reports agreeing defects filed under incompatible
// categories.
func categoryConflict(defects []Finding, cfg MatchConfig) bool {
	for i := 0; i < len(defects); i++ {
		for j := i + 1; j < len(defects); j++ {
			if !cfg.CategoriesCompatible(defects[i].Category, defects[j].Category) {
				return true
			}
		}
	}
	return false
}

func levelGap(a, b Severity) int {
	d := a.Rank() - b.Rank()
	if d < 0 {
		return -d
	}
	return d
}
