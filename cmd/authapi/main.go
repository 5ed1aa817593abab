package main

import "github.com/Ignatius32/keycloak-auth-template/cmd/authapi/cmd"

func main() {
	cmd.Execute()
}
