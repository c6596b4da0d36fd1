package credentials

import (
	"fmt"
	"os"
	"strconv"
)

// FromEnv builds a pool from PREFIX_USER, PREFIX_PASS and PREFIX_TOKEN,
// then PREFIX_USER_2 and so on until a username is missing. A token set in
// the environment is marked preset so suites do not mint a new one.
func FromEnv(prefix string) ([]Credential, error) {
	return fromEnv(prefix, os.LookupEnv)
}

func fromEnv(prefix string, lookup func(string) (string, bool)) ([]Credential, error) {
	var creds []Credential
	for n := 1; ; n++ {
		suffix := ""
		if n > 1 {
			suffix = "_" + strconv.Itoa(n)
		}
		user, ok := lookup(prefix + "_USER" + suffix)
		if !ok || user == "" {
			break
		}
		pass, _ := lookup(prefix + "_PASS" + suffix)
		token, _ := lookup(prefix + "_TOKEN" + suffix)
		creds = append(creds, Credential{
			Username:      user,
			Password:      pass,
			Token:         token,
			IsPresetToken: token != "",
		})
	}
	if len(creds) == 0 {
		return nil, fmt.Errorf("no credentials in environment: %s_USER is not set", prefix)
	}
	return creds, nil
}
