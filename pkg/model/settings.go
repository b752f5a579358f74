package model

// UISettings are the user-facing display settings.
type UISettings struct {
	HideBottomBar bool   `json:"hideBottomBar"`
	PhysicsEngine string `json:"physicsEngine"` // "barnesHut" or "forceAtlas2Based"
}

// ErrorResponse is the JSON body of every failed API request.
type ErrorResponse struct {
	Error string   `json:"error"`
	Kind  string   `json:"kind"`
	Hints []string `json:"hints,omitempty"`
}
