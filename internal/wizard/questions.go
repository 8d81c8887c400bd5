package wizard

// DefaultQuestions is the ordered questionnaire the wizard service walks
// through when building a game design document. The backend owns the
// authoritative copy; this one backs the offline preview and tests.
var DefaultQuestions = []string{
	"What is the core fantasy or big idea of your game?",
	"Who is your target audience? (age, platform, experience, motivations)",
	"What makes your game unique compared to other titles?",
	"What is the game's genre and setting?",
	"Describe the core gameplay loop in one or two sentences.",
	"List the top three gameplay mechanics that define the moment-to-moment experience.",
	"How does player progression work? (meta progression, leveling, unlocks)",
	"Describe the main characters, units, or roles featured in the game.",
	"What is the desired art style? (references welcome)",
	"Which platforms will the game release on? (iOS, Android, PC, console)",
	"How will the game make money? (cosmetics, battle pass, IAPs, ads)",
	"Which existing games, films, or genres serve as key inspirations?",
	"Do you have any constraints? (budget, timeline, team size)",
	"Is there anything else that is important for the design team to know?",
}
