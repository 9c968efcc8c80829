package memory

import "fmt"

func novelKey(novelID string) string { return "novel:" + novelID }

func characterKey(novelID, id string) string { return fmt.Sprintf("character:%s:%s", novelID, id) }

func locationKey(novelID, id string) string { return fmt.Sprintf("location:%s:%s", novelID, id) }

func chapterKey(novelID string, number int) string { return fmt.Sprintf("chapter:%s:%d", novelID, number) }

func worldStateKey(novelID string) string { return "worldstate:" + novelID }
