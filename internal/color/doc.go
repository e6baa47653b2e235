// Package color maps component color names to terminal styles and decides
// whether the output stream is colored at all.
//
// # Color Names
//
// Components pick one of blue, green, yellow, purple, white, red or cyan.
// Each maps to the matching basic ANSI color and is rendered bold, so the
// result looks the same on any terminal that supports 8 colors.
//
// # Color Detection
//
// The --color flag selects the mode:
//   - auto: color only when the sink is a terminal and NO_COLOR is unset
//   - always: force ANSI colors, e.g. when piping into `less -R`
//   - never: plain text
//
// # Usage Example
//
//	styles := color.NewStyles(color.NewRenderer(os.Stdout, color.ModeAuto))
//	fmt.Println(styles.Component("blue").Render("api"))
package color
