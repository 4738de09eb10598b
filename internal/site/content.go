package site

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Content is everything the public pages say.
type Content struct {
	Name      string    `toml:"name"`
	Tagline   string    `toml:"tagline"`
	About     string    `toml:"about"`
	Skills    []string  `toml:"skills"`
	Projects  []Project `toml:"projects"`
	Work      []Entry   `toml:"work"`
	Education []Entry   `toml:"education"`
}

// Project is one portfolio card.
type Project struct {
	Title   string `toml:"title"`
	Summary string `toml:"summary"`
	Link    string `toml:"link"`
}

// Entry is one job or qualification.
type Entry struct {
	Title        string   `toml:"title"`
	Organization string   `toml:"organization"`
	Start        string   `toml:"start"`
	End          string   `toml:"end"`
	Logo         string   `toml:"logo"`
	Bullets      []string `toml:"bullets"`
}

// DefaultContent is compiled in so the site runs without a content file.
func DefaultContent() Content {
	return Content{
		Name:    "Zach Kordas-Potter",
		Tagline: "Software developer. Builds things in Go, mostly for the terminal and the web.",
		About: `I love building software that's both useful and fun, and I'm always curious about how things work behind the scenes.
Most of my projects start with a simple idea and turn into a chance to learn something new, whether it's exploring a
different language, experimenting with tools, or solving tricky problems.
When I'm not coding, you'll usually find me training Muay Thai, shooting pool with friends,
or chasing down a new challenge outside the screen.`,
		Skills: []string{"Go", "Gin", "HTMX", "SQL", "Python", "Tailwind CSS", "Linux", "Git"},
		Projects: []Project{
			{
				Title: "Terminal Mail",
				Summary: `A terminal-based email client built in Go with fuzzyfinder capabilities
using the Charmbracelet TUI framework and go-imap.`,
			},
			{
				Title: "Terminal Music",
				Summary: `A terminal-based music streaming application built in Go with an elegant TUI
interface, leveraging yt-dlp and mpv for seamless YouTube Music playback directly from the command line.`,
			},
			{
				Title: "Game Recommender",
				Summary: `A machine learning-powered web application that uses TF-IDF vectorization and cosine
similarity to recommend games based on content analysis, featuring interactive data visualizations and
real-time filtering by user reviews and ratings.`,
			},
			{
				Title: "This Portfolio",
				Summary: `A modern, responsive portfolio website built with Go, Gin framework, and HTMX for
dynamic interactions, with a live cosmic background and a small admin area.`,
			},
		},
		Work: []Entry{
			{
				Title:        "Presentation Expert",
				Organization: "Target",
				Start:        "Aug 2023",
				End:          "Present",
				Logo:         "/images/TargetLogo.jpg",
				Bullets: []string{
					"Executed over 300 merchandising transitions on tight timelines by organizing team workflows and adapting quickly to changing priorities",
					"Boosted operational efficiency by managing backroom inventory processes and streamlining communication between floor and logistics teams",
					"Enhanced pricing and signage accuracy across departments by standardizing daily checks and collaborating cross-functionally",
				},
			},
			{
				Title:        "Manager",
				Organization: "Jasons Catered Events",
				Start:        "Aug 2016",
				End:          "Present",
				Logo:         "/images/jasonsCateringLogo.png",
				Bullets: []string{
					"Improved client satisfaction by coordinating customized menus and ensuring all dietary requirements were accurately met",
					"Supported event technology by troubleshooting AV equipment and managing digital order tracking systems, reducing technical delays and improving communication",
					"Maintained supply inventory and coordinated timely delivery between venues, optimizing resource allocation and minimizing downtime.",
				},
			},
		},
		Education: []Entry{
			{
				Title:        "Bachelor of Computer Science",
				Organization: "Western Governors University",
				Start:        "Sept 2019",
				End:          "May 2023",
				Logo:         "/images/WGU-logo.png",
				Bullets: []string{
					"Graduated Magna Cum Laude with 3.8 GPA",
					"Relevant coursework: Data Structures, Algorithms, Web Development",
					"Senior project: Machine Learning recommendation system",
				},
			},
			{
				Title:        "Project Management",
				Organization: "Comptia",
				Start:        "July 2022",
				End:          "Present",
				Logo:         "/images/comptiaCert.png",
				Bullets: []string{
					"Certified in agile project management methodology",
					"Verification code: SRRRPGBSWBRQCCDJ",
				},
			},
		},
	}
}

// LoadContent reads a TOML file over the defaults: keys present in the file
// replace the default value, missing keys keep it. An empty path returns the
// defaults.
func LoadContent(path string) (Content, error) {
	c := DefaultContent()
	if path == "" {
		return c, nil
	}

	var file Content
	md, err := toml.DecodeFile(path, &file)
	if err != nil {
		return Content{}, fmt.Errorf("decode content %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Content{}, fmt.Errorf("decode content %s: unknown key %q", path, undecoded[0].String())
	}

	if md.IsDefined("name") {
		c.Name = file.Name
	}
	if md.IsDefined("tagline") {
		c.Tagline = file.Tagline
	}
	if md.IsDefined("about") {
		c.About = file.About
	}
	if md.IsDefined("skills") {
		c.Skills = file.Skills
	}
	if md.IsDefined("projects") {
		c.Projects = file.Projects
	}
	if md.IsDefined("work") {
		c.Work = file.Work
	}
	if md.IsDefined("education") {
		c.Education = file.Education
	}
	return c, nil
}
