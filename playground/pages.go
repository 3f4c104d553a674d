package playground

// Page is one entry of the navigational index
type Page struct {
	Path        string `json:"path"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Widget      string `json:"widget,omitempty"` // Backing widget, if interactive
	Available   bool   `json:"available"`        // False for pages that are only announced
	Children    []Page `json:"children,omitempty"`
}

// Pages returns the site map
func Pages() []Page {
	return []Page{
		{
			Path:        "/",
			Title:       "Home",
			Description: "Machine learning concepts through interactive demos",
			Available:   true,
		},
		{
			Path:        "/supervised",
			Title:       "Supervised Learning",
			Description: "Learn how machines predict outcomes from labeled training data",
			Available:   true,
			Children: []Page{
				{
					Path:        "/supervised/linear-regression",
					Title:       "Linear Regression",
					Description: "Predict continuous values using linear relationships",
					Widget:      WidgetRegression,
					Available:   true,
				},
				{Path: "/supervised/decision-trees", Title: "Decision Trees"},
				{Path: "/supervised/neural-networks", Title: "Neural Networks"},
			},
		},
		{
			Path:        "/unsupervised",
			Title:       "Unsupervised Learning",
			Description: "Discover patterns and structures in unlabeled data",
			Available:   true,
			Children: []Page{
				{
					Path:        "/unsupervised/kmeans",
					Title:       "K-Means Clustering",
					Description: "Group similar data points into clusters",
					Widget:      WidgetKMeans,
					Available:   true,
				},
				{Path: "/unsupervised/pca", Title: "PCA"},
				{Path: "/unsupervised/dbscan", Title: "DBSCAN"},
			},
		},
		{
			Path:        "/nextpagerein",
			Title:       "Reinforcement Learning",
			Description: "An agent learns to reach the goal of a five-cell grid by trial and error",
			Widget:      WidgetQLearning,
			Available:   true,
		},
	}
}
