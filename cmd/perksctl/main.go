package main

import "github.com/perkshq/perks/internal/ctl"

func main() {
	ctl.Execute()
}
