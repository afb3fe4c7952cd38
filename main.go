package main

import "groupware/internal/app"

// @title           Groupware Tasks API
// @version         1.0
// @description     Task persistence and update engine: folders, participants, reminders, recurrence.

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	app.Run()
}
